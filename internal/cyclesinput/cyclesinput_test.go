package cyclesinput

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclesdojo/internal/simulator"
)

func TestAdjustDOY(t *testing.T) {
	cases := map[int]int{1: 1, 365: 365, 366: 1, 375: 10, 0: 365, -9: 356, 100: 100}
	for in, want := range cases {
		assert.Equal(t, want, AdjustDOY(in), "AdjustDOY(%d)", in)
	}
}

func kinds(ops []Operation) []Kind {
	out := make([]Kind, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

func TestOperations_Order(t *testing.T) {
	p := DefaultParams()
	p.WeedFraction = 0.2
	ops := Operations(p)

	assert.Equal(t, []Kind{KillCrop, Fertilize, Tillage, Plant, WeedPlanting, WeedingTillage}, kinds(ops))
	assert.Equal(t, []int{90, 90, 90, 100, 107, 120}, []int{ops[0].DOY, ops[1].DOY, ops[2].DOY, ops[3].DOY, ops[4].DOY, ops[5].DOY})
	assert.Equal(t, AutoEndDOY, ops[3].EndDOY)
}

func TestOperations_NoWeedWithoutFraction(t *testing.T) {
	ops := Operations(DefaultParams())
	assert.Equal(t, []Kind{KillCrop, Fertilize, Tillage, Plant, WeedingTillage}, kinds(ops))
	out := RenderOperations(ops)
	assert.NotContains(t, out, "C3_weed")
	assert.NotContains(t, out, "C4_weed")
	assert.Equal(t, 1, strings.Count(out, "PLANTING\n"), "only the crop is planted")
	assert.Contains(t, out, "Hand_hoeing_weeding", "the weeding tillage is always scheduled")
}

func TestOperations_WrapAcrossYearEnd(t *testing.T) {
	p := DefaultParams()
	p.StartPlantingDay = 355
	p.EndPlantingDay = 20
	p.WeedFraction = 0.1
	ops := Operations(p)

	// 355+20 wraps to 10 and 355+7 to 362; sorting puts the weeding first.
	assert.Equal(t, []Kind{WeedingTillage, KillCrop, Fertilize, Tillage, Plant, WeedPlanting}, kinds(ops))
	assert.Equal(t, 10, ops[0].DOY)
	assert.Equal(t, 20, ops[4].EndDOY)
}

func TestRenderOperations_Layout(t *testing.T) {
	p := DefaultParams()
	p.FertilizerRate = 50
	p.WeedFraction = 0.2
	out := RenderOperations(Operations(p))

	assert.True(t, strings.HasPrefix(out, "TILLAGE\nYEAR                1\nDOY                 90\nTOOL                Kill_Crop\n"))
	assert.Contains(t, out, "FIXED_FERTILIZATION\nYEAR                1\nDOY                 90\nSOURCE              32-00-00\nMASS                50.00\n")
	assert.Contains(t, out, "CROP                Maize\n")
	assert.Contains(t, out, "CROP                C3_weed\n")
	assert.Contains(t, out, "CROP                C4_weed\n")
	assert.Contains(t, out, "FRACTION            0.2\n")
	assert.Equal(t, 7, strings.Count(out, "\n\n"), "one blank line after each of the seven blocks")
	assert.True(t, strings.HasSuffix(out, "FORAGE_HARVEST      0.0\n\n"))
}

func TestRenderControl(t *testing.T) {
	got, err := RenderControl("A $x B ${y}z $$5 $", map[string]string{"x": "1", "y": "2"})
	require.NoError(t, err)
	assert.Equal(t, "A 1 B 2z $5 $", got)

	_, err = RenderControl("$missing", nil)
	var merr *MissingPlaceholderError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "missing", merr.Name)

	_, err = RenderControl("${open", nil)
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	p := DefaultParams()
	p.CropFile = "crops.crop"
	p.SoilFile = "kenya.soil"
	p.WeatherFile = "kenya.weather"

	files, err := Generate(dir, "", p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "input", "cycles-run.ctrl"), files.Control)

	ctrl, err := os.ReadFile(files.Control)
	require.NoError(t, err)
	for _, want := range []string{
		"SIMULATION_START_YEAR   2000\n",
		"SIMULATION_END_YEAR     2017\n",
		"ROTATION_SIZE           1\n",
		"USE_REINITIALIZATION    0\n",
		"CROP_FILE               crops.crop\n",
		"OPERATION_FILE          cycles-run.operation\n",
		"SOIL_FILE               kenya.soil\n",
		"WEATHER_FILE            kenya.weather\n",
	} {
		assert.Contains(t, string(ctrl), want)
	}

	ops, err := os.ReadFile(files.Operation)
	require.NoError(t, err)
	assert.Equal(t, RenderOperations(Operations(p)), string(ops))
}

func TestGenerate_BadTemplate(t *testing.T) {
	_, err := Generate(t.TempDir(), "SOIL $soil_file $unknown", DefaultParams())
	var merr *MissingPlaceholderError
	assert.True(t, errors.As(err, &merr))
}

func TestLaunch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "Cycles")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n[ \"$1\" = \"-s\" ] && [ -f \"input/$2.ctrl\" ] && echo ok\n"), 0755))

	_, err := Generate(dir, "", DefaultParams())
	require.NoError(t, err)

	res, err := Launch(context.Background(), simulator.NewDirectExecutor(), bin, dir)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", res.Stdout)

	require.NoError(t, os.Remove(filepath.Join(dir, "input", ControlFile)))
	_, err = Launch(context.Background(), simulator.NewDirectExecutor(), bin, dir)
	var ierr *simulator.InvocationError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, 1, ierr.ExitCode)
}
