package api

import (
	"encoding/xml"
	"time"
)

// XML namespaces.
const (
	NamespaceAtom = "http://www.w3.org/2005/Atom"
	NamespaceApp  = "http://www.w3.org/2007/app"
)

// Media types used on the wire.
const (
	ContentTypeAtom       = "application/atom+xml"
	ContentTypeAtomFeed   = "application/atom+xml;type=feed"
	ContentTypeAtomEntry  = "application/atom+xml;type=entry"
	ContentTypeService    = "application/atomsvc+xml"
	ContentTypeCategories = "application/atomcat+xml"
	ContentTypeJSON       = "application/json"
)

// Link relations.
const (
	RelSelf      = "self"
	RelEdit      = "edit"
	RelEditMedia = "edit-media"
	RelAlternate = "alternate"
)

// Feed is an Atom feed document.
type Feed struct {
	XMLName xml.Name  `xml:"http://www.w3.org/2005/Atom feed"`
	ID      string    `xml:"id"`
	Title   string    `xml:"title"`
	Updated time.Time `xml:"updated"`
	Authors []Person  `xml:"author,omitempty"`
	Links   []Link    `xml:"link,omitempty"`
	Entries []*Entry  `xml:"entry,omitempty"`
}

// Entry is an Atom entry, either standalone or inside a Feed.
type Entry struct {
	XMLName    xml.Name   `xml:"http://www.w3.org/2005/Atom entry"`
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary,omitempty"`
	Authors    []Person   `xml:"author,omitempty"`
	Categories []Category `xml:"category,omitempty"`
	Content    *Content   `xml:"content,omitempty"`
	Links      []Link     `xml:"link,omitempty"`
	Published  time.Time  `xml:"published"`
	Updated    time.Time  `xml:"updated"`
}

// Link returns the href of the first link with the given relation.
func (e *Entry) Link(rel string) string {
	for _, l := range e.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

// Content is the atom:content element. Src is set for media link entries.
type Content struct {
	Type string `xml:"type,attr,omitempty"`
	Src  string `xml:"src,attr,omitempty"`
	Body string `xml:",chardata"`
}

// Link is the atom:link element.
type Link struct {
	Rel  string `xml:"rel,attr,omitempty"`
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr,omitempty"`
}

// Person is an atom:author or atom:contributor.
type Person struct {
	Name  string `xml:"name"`
	Email string `xml:"email,omitempty"`
}

// Category is the atom:category element.
type Category struct {
	Term   string `xml:"term,attr"`
	Scheme string `xml:"scheme,attr,omitempty"`
	Label  string `xml:"label,attr,omitempty"`
}

// Categories is an AtomPub category document (app:categories).
type Categories struct {
	XMLName    xml.Name   `xml:"http://www.w3.org/2007/app categories"`
	Fixed      string     `xml:"fixed,attr,omitempty"`
	Scheme     string     `xml:"scheme,attr,omitempty"`
	Categories []Category `xml:"http://www.w3.org/2005/Atom category"`
}

// Service is an AtomPub service document.
type Service struct {
	XMLName    xml.Name    `xml:"http://www.w3.org/2007/app service"`
	Workspaces []Workspace `xml:"http://www.w3.org/2007/app workspace"`
}

// Workspace is an app:workspace inside a service document.
type Workspace struct {
	Title       string           `xml:"http://www.w3.org/2005/Atom title"`
	Collections []CollectionInfo `xml:"http://www.w3.org/2007/app collection"`
}

// CollectionInfo is an app:collection inside a workspace.
type CollectionInfo struct {
	Href       string      `xml:"href,attr"`
	Title      string      `xml:"http://www.w3.org/2005/Atom title"`
	Accept     []string    `xml:"http://www.w3.org/2007/app accept,omitempty"`
	Categories *Categories `xml:",omitempty"`
}
