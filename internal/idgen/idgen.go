package idgen

import "github.com/google/uuid"

// New returns a new globally unique identifier. NewFunc can be replaced by
// tests.
var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }
