// Package mdimage implements the Markdown Image Rewriter (C5): two pure
// functions that extract and rewrite image URLs inside Markdown image
// syntax, leaving everything else untouched.
package mdimage

import "regexp"

// imagePattern matches Markdown image syntax ![alt](URL ...), capturing
// the URL up to the first whitespace or closing paren.
var imagePattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)`)

// Extract returns the ordered list of image URLs referenced in md.
func Extract(md string) []string {
	matches := imagePattern.FindAllStringSubmatch(md, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m[1])
	}
	return urls
}

// Rewrite replaces, inside the image syntax only, any URL present as a
// key in urlMap with its mapped value. URLs not present in urlMap are
// preserved verbatim, and Markdown structure outside the image syntax is
// untouched. Rewrite is idempotent: applying it twice with the same map
// produces the same result as applying it once, since a rewritten URL is
// never itself a key of urlMap (callers map from source CDN URL to blob
// URL, never the reverse).
func Rewrite(md string, urlMap map[string]string) string {
	if len(urlMap) == 0 {
		return md
	}
	return imagePattern.ReplaceAllStringFunc(md, func(match string) string {
		sub := imagePattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		src := sub[1]
		dst, ok := urlMap[src]
		if !ok {
			return match
		}
		// match is "![alt](src"; replace only the trailing src with dst.
		return match[:len(match)-len(src)] + dst
	})
}
