package middleware

import "github.com/gin-gonic/gin"

const responseMetaKey = "responseMeta"

// WithResponseMeta merges the given pairs into the response meta map that
// handlers attach to the envelope.
func WithResponseMeta(c *gin.Context, pairs map[string]interface{}) {
	meta := map[string]interface{}{}
	if existing, ok := c.Get(responseMetaKey); ok {
		if m, ok := existing.(map[string]interface{}); ok {
			meta = m
		}
	}
	for k, v := range pairs {
		meta[k] = v
	}
	c.Set(responseMetaKey, meta)
}

// SetCacheHit records whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	WithResponseMeta(c, map[string]interface{}{"cacheHit": hit})
}

// ExtractMeta returns the accumulated meta map, or nil when none was set.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	value, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return meta
}
