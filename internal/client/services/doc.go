// Package services holds the client use cases: the local history store,
// the submission controller and the recorder that files replayed offline
// uploads into history.
package services
