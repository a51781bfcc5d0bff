/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package testmodels holds entity types shared by integration tests.
package testmodels

import "time"

// Team is a sports team entity.
type Team struct {

	// Unique identifier for the team.
	ID string `json:"id,omitempty"`

	// Name of the team.
	// Required: true
	Name string `json:"name"`

	// Division the team plays in.
	Division string `json:"division,omitempty"`

	// Points accumulated this season.
	Points int `json:"points,omitempty"`

	// Club the team belongs to.
	ClubID string `json:"clubId,omitempty"`

	// Date the team was founded.
	// Format: date-time
	Founded time.Time `json:"founded,omitempty"`
}

// Club is the parent organization of one or more teams.
type Club struct {

	// Unique identifier for the club.
	ID string `json:"id,omitempty"`

	// Name of the club.
	// Required: true
	Name string `json:"name"`

	// City the club is based in.
	City string `json:"city,omitempty"`
}
