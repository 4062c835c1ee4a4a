package source

import "strconv"

// galleryPayload mirrors <base>/galleries/<id>.json.
type galleryPayload struct {
	ID         flexString `json:"id"`
	Title      string     `json:"title"`
	Files      []struct {
		Name string `json:"name"`
		Hash string `json:"hash"`
	} `json:"files"`
	Artists []struct {
		Artist string `json:"artist"`
	} `json:"artists"`
	Parodys []struct {
		Parody string `json:"parody"`
	} `json:"parodys"`
	Characters []struct {
		Character string `json:"character"`
	} `json:"characters"`
	Tags []struct {
		Tag string `json:"tag"`
	} `json:"tags"`
}

// routingPayload mirrors <base>/routing.json.
type routingPayload struct {
	Version string   `json:"version"`
	Hosts   []string `json:"hosts"`
}

type searchPayload struct {
	IDs []flexString `json:"ids"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(data))
	return nil
}

func (p galleryPayload) record(fallbackID string) *Record {
	rec := &Record{
		ID:    string(p.ID),
		Title: NormalizeText(p.Title),
	}
	if rec.ID == "" {
		rec.ID = fallbackID
	}
	for i, f := range p.Files {
		rec.Fragments = append(rec.Fragments, Fragment{Name: f.Name, Hash: f.Hash, Index: i})
	}
	for _, a := range p.Artists {
		if name := NormalizeText(a.Artist); name != "" {
			rec.Artists = append(rec.Artists, name)
		}
	}
	add := func(kind TagKind, alias string) {
		if tag := NewRawTag(kind, alias); tag.Alias() != "" {
			rec.Tags = append(rec.Tags, tag)
		}
	}
	for _, t := range p.Parodys {
		add(TagSetting, t.Parody)
	}
	for _, t := range p.Characters {
		add(TagCharacter, t.Character)
	}
	for _, t := range p.Tags {
		add(TagGeneric, t.Tag)
	}
	return rec
}
