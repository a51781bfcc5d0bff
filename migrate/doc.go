/*
Package migrate upgrades stored documents to the current schema version
on read.

Migrations are (targetVersion, transform) pairs applied in ascending
order to any document whose schema tag lags behind. The pipeline fails
open: a failing step aborts the chain and the caller receives the last
successfully-migrated state instead of an error. When anything was
migrated, the upgraded form is written back to the store asynchronously
("read-repair"); that write-back is best-effort and never affects the
value already returned.
*/
package migrate
