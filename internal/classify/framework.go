// Package classify infers the web framework behind a detected application.
// Classification is a deterministic, ordered chain over three evidence
// sources: dependency manifests in the app's working directory, the HTTP
// response served from its port, and finally the port number itself.
package classify

// Framework is the closed set of frameworks the classifier can name.
type Framework string

const (
	React   Framework = "React"
	Vue     Framework = "Vue"
	Angular Framework = "Angular"
	NextJS  Framework = "NextJS"
	Django  Framework = "Django"
	Flask   Framework = "Flask"
	Express Framework = "Express"
	Vite    Framework = "Vite"
	Unknown Framework = "Unknown"
)

// String implements fmt.Stringer.
func (f Framework) String() string {
	if f == "" {
		return string(Unknown)
	}
	return string(f)
}

// Known reports whether f is a member of the closed framework set.
func Known(f Framework) bool {
	switch f {
	case React, Vue, Angular, NextJS, Django, Flask, Express, Vite, Unknown:
		return true
	}
	return false
}
