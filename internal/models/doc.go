// Package models defines the core domain models for group dining sessions.
//
// A Group is one party swiping together. Members join with a share code, the host
// sets Preferences, every member swipes on Restaurant candidates, and a Match is
// derived from the Swipes of the current members. Matches are never stored.
//
// Groups are owned by the session store. Values handed out by the store are
// snapshots: callers may read them freely but changes only take effect through
// store operations.
package models
