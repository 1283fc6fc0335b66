package swallow

import "github.com/jward/swallow/internal/store"

// Public type aliases for internal store types used in the report API.
// These are Go type aliases (=), identical to the internal types at compile
// time, so no conversion is needed.

type Store = store.Store
type Run = store.Run
type Package = store.Package
type File = store.File
type Finding = store.Finding
