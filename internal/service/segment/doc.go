// Package segment implements the client side of segment management.
//
// The Service is the mutation boundary: it normalizes and validates drafts
// with the segmentation package, calls the Repository, invalidates the list
// cache and reports the outcome through a Notifier. The Editor layers the
// create/edit form state machine on top of the Service.
//
// Repository implementations live in repository/httpapi/ (the REST client)
// and repository/memory/ (tests and local tools).
package segment
