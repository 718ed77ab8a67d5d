// Package view renders the relay's HTML pages as templ components.
package view

//go:generate templ generate

import "sort"

// sortedNames lists the usernames alphabetically; duplicates are kept
func sortedNames(users map[string]string) []string {
	names := make([]string, 0, len(users))
	for _, name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
