package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cyclesdojo/internal/config"
	"cyclesdojo/internal/cyclesinput"
)

// wrapperCmd renders simulator inputs and launches the simulator
var wrapperCmd = &cobra.Command{
	Use:   "wrapper [crop-file] [soil-file]",
	Short: "Generate Cycles control and operation files and run the simulator",
	Long: `Writes input/cycles-run.ctrl and input/cycles-run.operation under --dir,
then runs "<simulator.binary> -s cycles-run" there.

An end planting day of 0 lets the simulator pick the end of the planting
window.

Example:
  dojo wrapper --crop Maize -s 100 -n 50 --weather-file kenya.weather crops.crop kenya.soil`,
	Args: cobra.ExactArgs(2),
	RunE: runWrapper,
}

func init() {
	def := cyclesinput.DefaultParams()
	f := wrapperCmd.Flags()
	f.Int("start-year", def.StartYear, "Simulation start year")
	f.Int("end-year", def.EndYear, "Simulation end year")
	f.StringP("crop", "c", def.Crop, "Crop name")
	f.IntP("start-planting-date", "s", def.StartPlantingDay, "Start planting day of year")
	f.IntP("end-planting-date", "e", def.EndPlantingDay, "End planting day of year (0 for automatic)")
	f.Float64P("fertilizer-rate", "n", def.FertilizerRate, "Fertilizer rate")
	f.Float64("weed-fraction", def.WeedFraction, "Weed fraction")
	f.StringP("weather-file", "l", "", "Weather file")
	f.String("dir", ".", "Simulation directory")
	f.Bool("generate-only", false, "Write the input files without launching the simulator")
}

func wrapperParams(cmd *cobra.Command, args []string) cyclesinput.Params {
	f := cmd.Flags()
	p := cyclesinput.Params{CropFile: args[0], SoilFile: args[1]}
	p.StartYear, _ = f.GetInt("start-year")
	p.EndYear, _ = f.GetInt("end-year")
	p.Crop, _ = f.GetString("crop")
	p.StartPlantingDay, _ = f.GetInt("start-planting-date")
	p.EndPlantingDay, _ = f.GetInt("end-planting-date")
	p.FertilizerRate, _ = f.GetFloat64("fertilizer-rate")
	p.WeedFraction, _ = f.GetFloat64("weed-fraction")
	p.WeatherFile, _ = f.GetString("weather-file")
	return p
}

func runWrapper(cmd *cobra.Command, args []string) error {
	p := wrapperParams(cmd, args)
	if p.StartYear > p.EndYear {
		return fmt.Errorf("start year %d is after end year %d", p.StartYear, p.EndYear)
	}
	dir, _ := cmd.Flags().GetString("dir")
	generateOnly, _ := cmd.Flags().GetBool("generate-only")
	if !generateOnly {
		if err := cfg.RequireFiles(config.StageWrapper); err != nil {
			return err
		}
	}

	var tmpl string
	if cfg.Simulator.ControlTemplate != "" {
		data, err := os.ReadFile(cfg.Simulator.ControlTemplate)
		if err != nil {
			return fmt.Errorf("read control template: %w", err)
		}
		tmpl = string(data)
	}

	files, err := cyclesinput.Generate(dir, tmpl, p)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\nWrote %s\n", files.Control, files.Operation)
	if generateOnly {
		return nil
	}

	ctx, cancel := commandContext()
	defer cancel()

	logger.Info("Launching simulator", zap.String("binary", cfg.Simulator.Binary), zap.String("dir", dir))
	res, err := cyclesinput.Launch(ctx, newExecutor(), cfg.Simulator.Binary, dir)
	if res != nil {
		fmt.Print(res.Output())
	}
	if err != nil {
		return err
	}
	logger.Info("Simulator finished", zap.Duration("duration", res.Duration))
	return nil
}
