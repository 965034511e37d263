package blockweave

import "github.com/blockweave/blockweave/id"

// ID is the primary identifier type for all Blockweave entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
