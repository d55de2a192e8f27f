package zipfsm

import "github.com/bmatcuk/doublestar/v4"

// Glob returns the entries in the archive whose name matches pattern,
// using doublestar's "**" shell-style matching rather than the stdlib
// path.Match, which can't express recursive directory wildcards.
func (a *Archive) Glob(pattern string) ([]Entry, error) {
	var matches []Entry
	for _, e := range a.Entries {
		ok, err := doublestar.Match(pattern, e.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, e)
		}
	}
	return matches, nil
}
