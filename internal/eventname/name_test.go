package eventname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		sdkType    string
		module     string
	}{
		{"core module and method", "mockModule.mockMethod", "core", "mockmodule"},
		{"explicit surface", "mocksdk_mockModule.mockMethod", "mocksdk", "mockmodule"},
		{"surface is lower-cased", "Discovery_Content.onPullEntityInfo", "discovery", "content"},
		{"method only", "mockMethod", "core", "mockmethod"},
		{"empty", "", "core", ""},
		{"short core", "a.b", "core", "a"},
		{"short surface", "x_a.b", "x", "a"},
		{"underscore without method", "x_a", "core", "x_a"},
		{"underscore after dot", "a.b_c", "core", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sdkType, module := Resolve(tt.identifier)
			assert.Equal(t, tt.sdkType, sdkType)
			assert.Equal(t, tt.module, module)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		sdkType, module := Resolve("manage_Device.onNameChanged")
		assert.Equal(t, "manage", sdkType)
		assert.Equal(t, "device", module)
	}
}

func TestParse_Components(t *testing.T) {
	n := Parse("sdk_moduleX.onChanged")

	assert.Equal(t, "sdk_moduleX.onChanged", n.Full)
	assert.Equal(t, "moduleX", n.RawModule)
	assert.Equal(t, "modulex", n.Module)
	assert.Equal(t, "onChanged", n.Method)
	assert.Equal(t, "moduleX.onChanged", n.Qualified())
	assert.Equal(t, "changed", n.Suffix())
	assert.Equal(t, "onChanged", n.MethodName())
	assert.Equal(t, "modulex.onChanged", n.CatalogName())
	assert.Equal(t, "moduleX.onChanged-7", n.ListenerID("7"))
}

func TestName_MethodName(t *testing.T) {
	n := Parse("mocksdk_mockmodule.onmodulechanged")
	assert.Equal(t, "modulechanged", n.Suffix())
	assert.Equal(t, "onModulechanged", n.MethodName())
}

func TestName_SuffixWithoutOnPrefix(t *testing.T) {
	n := Parse("device.nameChanged")
	assert.Equal(t, "namechanged", n.Suffix())
}

func TestParseStrict(t *testing.T) {
	n, err := ParseStrict("mocksdk_mockmodule.onmodulechanged")
	require.NoError(t, err)
	assert.Equal(t, "mocksdk", n.SDKType)
	assert.Equal(t, "mockmodule", n.Module)
	assert.Equal(t, "onmodulechanged", n.Method)
}

func TestParseStrict_Malformed(t *testing.T) {
	for _, identifier := range []string{
		"onmodulechanged",
		"mockmodule.modulechanged",
		"mocksdk_mockmodule",
		"_mockmodule.onchanged",
		"a.b_c.d",
		"mocksdk_.onchanged",
		"mocksdk_mockmodule.",
		"",
	} {
		t.Run(identifier, func(t *testing.T) {
			_, err := ParseStrict(identifier)
			require.Error(t, err)
			var me *MalformedError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, identifier, me.Identifier)
		})
	}
}
