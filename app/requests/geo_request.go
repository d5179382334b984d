package requests

// ResolveOptions tunes one resolution. UseCache defaults to true.
type ResolveOptions struct {
	Strict   bool  `json:"strict,omitempty"`
	UseCache *bool `json:"use_cache,omitempty"`
}

// CacheEnabled applies the default.
func (o ResolveOptions) CacheEnabled() bool {
	return o.UseCache == nil || *o.UseCache
}

// ResolveRequest asks for the location of one news text.
type ResolveRequest struct {
	Content string         `json:"content" binding:"required"`
	Options ResolveOptions `json:"options,omitempty"`
}

// BatchResolveRequest submits a background batch.
type BatchResolveRequest struct {
	Contents []string       `json:"contents" binding:"required,min=1"`
	Options  ResolveOptions `json:"options,omitempty"`
}

// InvalidateCacheRequest removes one text's cached result, or everything
// when Content is empty.
type InvalidateCacheRequest struct {
	Content string `json:"content,omitempty"`
}
