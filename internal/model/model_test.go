// SPDX-License-Identifier: MIT
package model

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseSubjectID(t *testing.T) {
	id, ok := ParseSubjectID("  sub-01\t")
	require.True(t, ok)
	assert.Equal(t, SubjectID("sub-01"), id)

	_, ok = ParseSubjectID(" \t ")
	assert.False(t, ok)
}

func TestSubjectID_Validate(t *testing.T) {
	for _, id := range []SubjectID{"sub-01", "sub..01", "A"} {
		assert.NoError(t, id.Validate(), id)
	}
	for _, id := range []SubjectID{"site1/sub01", `site1\sub01`, "../../etc/x", ".", ".."} {
		assert.Error(t, id.Validate(), id)
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "skipped_missing_input", StatusSkippedMissingInput.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestZeroValuesAreNotSuccess(t *testing.T) {
	var st Status
	assert.Equal(t, StatusUnknown, st)
	assert.False(t, Outcome{}.Succeeded())

	upstream := map[string]Status{}
	assert.NotEqual(t, StatusSuccess, upstream["normalize"])
}

func TestParseStatus(t *testing.T) {
	for _, st := range []Status{StatusSuccess, StatusSkippedMissingInput, StatusFailed} {
		got, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	for _, raw := range []string{"done", "unknown"} {
		got, err := ParseStatus(raw)
		assert.Error(t, err, raw)
		assert.Equal(t, StatusUnknown, got)
	}
}

func TestStageSpec_HasCommand(t *testing.T) {
	null := hcl.StaticExpr(cty.NullVal(cty.DynamicPseudoType), hcl.Range{})
	assert.False(t, (&StageSpec{Command: null}).HasCommand())
	assert.False(t, (&StageSpec{}).HasCommand())

	expr, diags := hclsyntax.ParseExpression([]byte(`["tool", inputs.t1, output]`), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors())
	assert.True(t, (&StageSpec{Command: expr}).HasCommand())
}

func TestStageSpec_UnusedParams(t *testing.T) {
	params := map[string]cty.Value{
		"fwhm":       cty.NumberIntVal(8),
		"voxel_size": cty.NumberFloatVal(1.5),
		"mode":       cty.StringVal("fast"),
	}
	parse := func(src string) hcl.Expression {
		expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
		require.False(t, diags.HasErrors(), diags.Error())
		return expr
	}

	testCases := map[string]struct {
		command string
		want    []string
	}{
		"none referenced": {`["tool", inputs.in, output]`, []string{"fwhm", "mode", "voxel_size"}},
		"some referenced": {`["tool", params.fwhm, params["mode"]]`, []string{"voxel_size"}},
		"all referenced":  {`["tool", params.fwhm, params.mode, params.voxel_size]`, nil},
		"whole object":    {`["tool", jsonencode(params)]`, nil},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			spec := &StageSpec{Command: parse(tc.command), Params: params}
			assert.Equal(t, tc.want, spec.UnusedParams())
		})
	}

	assert.Nil(t, (&StageSpec{Params: params}).UnusedParams(), "no command, nothing to check")
}

func TestStageSpec_InputLookup(t *testing.T) {
	spec := &StageSpec{Inputs: []*InputSpec{
		{Role: "gray_matter", Prefix: "mwp1"},
		{Role: "deformation_field", Prefix: "y_"},
	}}

	assert.Equal(t, "gray_matter", spec.Primary().Role)
	in, ok := spec.Input("deformation_field")
	require.True(t, ok)
	assert.Equal(t, "y_", in.Prefix)
	_, ok = spec.Input("missing")
	assert.False(t, ok)
	assert.Nil(t, (&StageSpec{}).Primary())
}
