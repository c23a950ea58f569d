package hcl

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type smoothParams struct {
	FWHM   float64 `param:"fwhm"`
	Kernel string  `param:"kernel,optional"`
}

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestDecodeParams(t *testing.T) {
	t.Parallel()
	c := NewConverter()
	ctx := context.Background()

	t.Run("converts and fills optional", func(t *testing.T) {
		var p smoothParams
		err := c.DecodeParams(ctx, &p, map[string]cty.Value{
			"fwhm": cty.StringVal("8"),
		})
		require.NoError(t, err)
		assert.Equal(t, smoothParams{FWHM: 8}, p)
	})

	t.Run("missing required", func(t *testing.T) {
		var p smoothParams
		err := c.DecodeParams(ctx, &p, map[string]cty.Value{"kernel": cty.StringVal("gauss")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing required parameter "fwhm"`)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		var p smoothParams
		err := c.DecodeParams(ctx, &p, map[string]cty.Value{
			"fwhm":  cty.NumberIntVal(8),
			"sigma": cty.NumberIntVal(3),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported parameters: sigma")
	})

	t.Run("type mismatch", func(t *testing.T) {
		var p smoothParams
		err := c.DecodeParams(ctx, &p, map[string]cty.Value{"fwhm": cty.StringVal("wide")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `failed to decode parameter "fwhm"`)
	})

	t.Run("nested lists", func(t *testing.T) {
		var p struct {
			BoundingBox [][]float64 `param:"bounding_box"`
		}
		box := cty.TupleVal([]cty.Value{
			cty.TupleVal([]cty.Value{cty.NumberIntVal(-90), cty.NumberIntVal(-126), cty.NumberIntVal(-72)}),
			cty.TupleVal([]cty.Value{cty.NumberIntVal(90), cty.NumberIntVal(90), cty.NumberIntVal(108)}),
		})
		require.NoError(t, c.DecodeParams(ctx, &p, map[string]cty.Value{"bounding_box": box}))
		assert.Equal(t, [][]float64{{-90, -126, -72}, {90, 90, 108}}, p.BoundingBox)
	})

	t.Run("rejects non pointer", func(t *testing.T) {
		assert.Error(t, c.DecodeParams(ctx, smoothParams{}, nil))
	})
}

func TestEvalCommand(t *testing.T) {
	t.Parallel()
	c := NewConverter()
	vars := config.CommandVars{
		Subject: "sub-01",
		Inputs:  map[string]string{"normalized": "/out/wsub-01.nii"},
		Output:  "/out/.s8wsub-01.nii.partial",
		Params: map[string]cty.Value{
			"fwhm":       cty.NumberIntVal(8),
			"voxel_size": cty.TupleVal([]cty.Value{cty.NumberFloatVal(1.5), cty.NumberFloatVal(1.5), cty.NumberFloatVal(1.5)}),
		},
	}

	testCases := map[string]struct {
		src  string
		want []string
	}{
		"variables and numbers": {
			src:  `["smooth", "--fwhm", params.fwhm, "--in", inputs.normalized, "--out", output]`,
			want: []string{"smooth", "--fwhm", "8", "--in", "/out/wsub-01.nii", "--out", "/out/.s8wsub-01.nii.partial"},
		},
		"functions": {
			src:  `["tool", format("--subject=%s", subject), join(",", params.voxel_size)]`,
			want: []string{"tool", "--subject=sub-01", "1.5,1.5,1.5"},
		},
		"flatten": {
			src:  `flatten(["tool", ["--vox", params.voxel_size]])`,
			want: []string{"tool", "--vox", "1.5", "1.5", "1.5"},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := c.EvalCommand(context.Background(), parseExpr(t, tc.src), vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	errorCases := map[string]string{
		"empty list":   `[]`,
		"not a list":   `"tool --help"`,
		"null":         `null`,
		"unknown role": `["tool", inputs.missing]`,
		"nested list":  `["tool", params.voxel_size]`,
	}
	for name, src := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := c.EvalCommand(context.Background(), parseExpr(t, src), vars)
			assert.Error(t, err)
		})
	}
}
