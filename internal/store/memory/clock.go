package memory

import "time"

// nowFunc is indirected so tests could stub it if ever needed; default is
// the real wall clock.
var nowFunc = time.Now
