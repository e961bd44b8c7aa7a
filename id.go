package subvault

import "github.com/xraph/subvault/id"

// ID is the TypeID used for recovery records, events and batches.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
