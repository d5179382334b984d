package models

// GeoResolution is the administrative location of a news text. Nil fields
// serialize as JSON null.
type GeoResolution struct {
	Province *string `json:"province"`
	City     *string `json:"city"`
	Code     *string `json:"code"`
}

// Empty reports whether nothing was resolved.
func (g *GeoResolution) Empty() bool {
	return g == nil || (g.Province == nil && g.City == nil && g.Code == nil)
}

// Clone returns a deep copy so cached values cannot be mutated by callers.
func (g *GeoResolution) Clone() *GeoResolution {
	if g == nil {
		return nil
	}
	return &GeoResolution{
		Province: cloneString(g.Province),
		City:     cloneString(g.City),
		Code:     cloneString(g.Code),
	}
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
