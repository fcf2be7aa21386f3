// Package model defines stable boundary types for API layers.
//
// Registry identity (entry ids and CID commitments) is unaffected by any
// projection. These structs are the only types intended for direct JSON/YAML
// serialization by consumers: change records for indexers and entry views for
// transports.
package model
