// Package geoexport serializes workspace shapes for download.
package geoexport

import (
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

const (
	// FileName is the name offered to the browser for exported documents.
	FileName = "drawnItems.geojson"

	dataURIPrefix = "data:text/json;charset=utf-8,"
)

// FeatureCollection builds one feature per shape, in order. Features carry
// the shape properties only.
func FeatureCollection(shapes []domain.Shape) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range shapes {
		f := geojson.NewFeature(s.Geometry)
		for k, v := range s.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}

// DataURI wraps a JSON document in a text/json data URI.
func DataURI(doc []byte) string {
	return dataURIPrefix + EncodeURIComponent(string(doc))
}

const upperhex = "0123456789ABCDEF"

// EncodeURIComponent escapes s the way the JavaScript global of the same
// name does: everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ) is written as
// percent-encoded UTF-8.
func EncodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
