package feed

// ConvertTo switches the feed's output format, converting the internal
// shape when the target is a different XML variant. Variant conversion is
// lossy: unknown extension elements do not cross over.
func (f *Feed) ConvertTo(format Format) error {
	switch format {
	case FormatJSON:
		f.format = FormatJSON
		return nil
	case FormatRSS:
		if f.atom != nil {
			f.rss = atomToRSS(f.atom)
			f.atom = nil
		}
		f.format = FormatRSS
		return nil
	case FormatAtom:
		if f.rss != nil {
			f.atom = rssToAtom(f.rss)
			f.rss = nil
		}
		f.format = FormatAtom
		return nil
	}
	return errUnknownFormat(format)
}

func errUnknownFormat(format Format) error {
	_, err := ParseFormat(string(format))
	return err
}

func atomToRSS(a *AtomFeed) *RSS {
	subtitle := ""
	if a.Subtitle != nil {
		subtitle = a.Subtitle.Value
	}
	doc := newRSS(a.Title.Value, alternateLink(a.Links), subtitle)
	for _, e := range a.Entries {
		src := Post{Entry: e}
		item := &Item{}
		dst := Post{Item: item}
		copyPost(dst, src)
		doc.Channel.Items = append(doc.Channel.Items, item)
	}
	return doc
}

func rssToAtom(r *RSS) *AtomFeed {
	ch := r.Channel
	if ch == nil {
		ch = &Channel{}
	}
	doc := newAtom(ch.Title, ch.Link, ch.Description)
	for _, it := range ch.Items {
		src := Post{Item: it}
		entry := &Entry{}
		dst := Post{Entry: entry}
		copyPost(dst, src)
		doc.Entries = append(doc.Entries, entry)
	}
	return doc
}

// copyPost moves the common capability set between variants.
func copyPost(dst, src Post) {
	dst.SetTitle(src.Title())
	if l := src.Link(); l != "" {
		dst.SetLink(l)
	}
	if a := src.Author(); a != "" {
		dst.SetAuthor(a)
	}
	if g := src.GUID(); g != "" {
		dst.SetGUID(g)
	}
	if t, ok := src.Date(); ok {
		dst.SetDate(t)
	}
	if b := src.Body(); b != "" {
		dst.SetBody(b)
	}
}
