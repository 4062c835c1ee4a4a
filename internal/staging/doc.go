// Package staging inspects and cleans the staging directory where fetched
// containers wait for commit. Containers are named <source id>.zip; one that
// survives a run blocks later acquisitions of the same source until an
// operator removes or commits it.
package staging
