package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaTypesFor(t *testing.T) {
	s := NewSchema(nil, nil)

	assert.Equal(t, []ValueType{TypePositiveNumber}, s.TypesFor("security.rateLimit.api.maxRequests"))
	assert.Equal(t, []ValueType{TypeURL}, s.TypesFor("seo.siteUrl"))
	assert.Equal(t, []ValueType{TypeString}, s.TypesFor("seo.title"))
	assert.Equal(t, []ValueType{TypeURL, TypeBool}, s.TypesFor("webhook.url.enabled"))
}

func TestSchemaAcceptsValidValues(t *testing.T) {
	s := NewSchema(nil, nil)

	assert.NoError(t, s.Check("security.rateLimit.api.maxRequests", "120"))
	assert.NoError(t, s.Check("security.rateLimit.api.windowMs", "60000.5"))
	assert.NoError(t, s.Check("seo.siteUrl", "https://labessentials.com/path?q=1"))
	assert.NoError(t, s.Check("seo.noindex", "false"))
	assert.NoError(t, s.Check("seo.title", "anything goes"))
}

func TestSchemaRejectsNaN(t *testing.T) {
	s := NewSchema(nil, nil)
	assert.Error(t, s.Check("security.rateLimit.api.maxRequests", "NaN"))
}

func TestSchemaCustomRules(t *testing.T) {
	s := NewSchema([]Rule{{Token: "ttl", Type: TypePositiveNumber}}, []string{})

	assert.Error(t, s.Check("cache.ttl", "-1"))
	assert.NoError(t, s.Check("seo.siteUrl", "not a url"))
	assert.False(t, s.IsProtected("ADMIN_TOKEN"))
}
