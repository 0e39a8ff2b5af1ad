// Package common contains small helpers and constants shared across the
// deskauth packages.
package common

// AppName names the default data directory, the default Redis namespace, the
// flag set and the logger's component attribute.
const AppName = "deskauth"
