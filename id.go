package upscaler

import (
	"github.com/CheapNud/CheapUpscaler-sub000/id"
)

// JobID is re-exported so embedders can refer to job identifiers
// without importing the id package directly.
type JobID = id.JobID
