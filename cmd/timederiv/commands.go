package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/timederiv/internal/config"
	"github.com/san-kum/timederiv/internal/export"
	"github.com/san-kum/timederiv/internal/report"
	"github.com/san-kum/timederiv/internal/stepstore"
	"github.com/san-kum/timederiv/internal/synth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	preset  string
	profile string
	genVar  string
	steps   int
	dt      float64
	nx      int
	ny      int
	nz      int
	slope   float64
	omega   float64
	drop    []int

	plot     bool
	jsonOut  bool
	jsonFile string
	verifyIn string
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <output>",
		Short: "write a synthetic input store",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	cmd.Flags().StringVar(&preset, "preset", "", "preset as profile/name (see presets)")
	cmd.Flags().StringVar(&profile, "profile", string(synth.Linear), "field profile: linear, quadratic, wave")
	cmd.Flags().StringVar(&genVar, "var", "F", "field variable name")
	cmd.Flags().IntVar(&steps, "steps", 10, "number of steps")
	cmd.Flags().Float64Var(&dt, "dt", 0.1, "time between steps")
	cmd.Flags().IntVar(&nx, "nx", 8, "grid points along x")
	cmd.Flags().IntVar(&ny, "ny", 8, "grid points along y")
	cmd.Flags().IntVar(&nz, "nz", 8, "grid points along z")
	cmd.Flags().Float64Var(&slope, "slope", 1.0, "field amplitude")
	cmd.Flags().Float64Var(&omega, "omega", 1.0, "angular frequency (wave)")
	cmd.Flags().IntSliceVar(&drop, "drop", nil, "producer steps to abort")
	return cmd
}

// buildSpec starts from the preset, if any, and applies explicitly set flags
// on top of it.
func buildSpec(cmd *cobra.Command) (synth.Spec, error) {
	spec := synth.Spec{
		Profile: synth.Profile(profile),
		Var:     genVar,
		Steps:   steps,
		Dt:      dt,
		Nx:      nx,
		Ny:      ny,
		Nz:      nz,
		Slope:   slope,
		Omega:   omega,
		Drop:    drop,
	}
	if preset == "" {
		return spec, spec.Validate()
	}

	prof, name, ok := strings.Cut(preset, "/")
	if !ok {
		return spec, fmt.Errorf("preset must be profile/name, got %q", preset)
	}
	p := config.GetPreset(prof, name)
	if p == nil {
		return spec, fmt.Errorf("unknown preset %q", preset)
	}
	base := *p

	flags := cmd.Flags()
	if flags.Changed("profile") {
		base.Profile = spec.Profile
	}
	if flags.Changed("var") {
		base.Var = spec.Var
	}
	if flags.Changed("steps") {
		base.Steps = spec.Steps
	}
	if flags.Changed("dt") {
		base.Dt = spec.Dt
	}
	if flags.Changed("nx") {
		base.Nx = spec.Nx
	}
	if flags.Changed("ny") {
		base.Ny = spec.Ny
	}
	if flags.Changed("nz") {
		base.Nz = spec.Nz
	}
	if flags.Changed("slope") {
		base.Slope = spec.Slope
	}
	if flags.Changed("omega") {
		base.Omega = spec.Omega
	}
	if flags.Changed("drop") {
		base.Drop = spec.Drop
	}
	return base, base.Validate()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	spec, err := buildSpec(cmd)
	if err != nil {
		return err
	}

	st, err := openNewStore(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	w, err := st.NewWriter()
	if err != nil {
		return err
	}
	for k, v := range spec.Attributes() {
		w.SetAttribute(k, v)
	}

	res, err := synth.Generate(cmd.Context(), w, spec)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	logger.Info("Generated input store",
		zap.String("path", args[0]),
		zap.String("profile", string(spec.Profile)),
		zap.Int("committed", res.Committed),
		zap.Int("aborted", res.Aborted),
		zap.Stringer("shape", res.Shape),
	)
	fmt.Printf("wrote %d steps (%d aborted) of %s to %s\n", res.Committed, res.Aborted, spec.Var, args[0])
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <store>",
		Short: "per-frame statistics of a derivative store",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().BoolVar(&plot, "plot", false, "plot peak derivative per frame")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as json")
	cmd.Flags().StringVarP(&jsonFile, "output", "o", "", "also write the json report to this file")
	cmd.Flags().StringVar(&verifyIn, "verify", "", "generated input store to check derivatives against")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	st, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	r := st.NewReader()
	rep, err := report.Collect(cmd.Context(), r)
	if err != nil {
		return err
	}
	rep.Source = args[0]
	if m, err := r.Manifest(); err == nil {
		rep.Manifest = &m
	} else {
		logger.Debug("No manifest", zap.Error(err))
	}

	if verifyIn != "" {
		if err := verify(cmd, st, rep); err != nil {
			return err
		}
	}

	if jsonFile != "" {
		if err := report.WriteJSONFile(jsonFile, rep); err != nil {
			return err
		}
	}
	if jsonOut {
		return report.WriteJSON(os.Stdout, rep)
	}
	return report.Render(os.Stdout, rep, plot)
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <store> <file.nc>",
		Short: "export a derivative store as NetCDF",
		Args:  cobra.ExactArgs(2),
		RunE:  runExport,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	r := st.NewReader()
	opts := export.Options{Source: args[0]}
	if m, err := r.Manifest(); err == nil {
		opts.RunID = m.RunID
	}

	n, err := export.NetCDF(cmd.Context(), r, args[1], opts)
	if err != nil {
		return err
	}
	logger.Info("Exported", zap.String("path", args[1]), zap.Int("frames", n))
	fmt.Printf("exported %d frames to %s\n", n, args[1])
	return nil
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list synthetic presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRESET\tSTEPS\tDT\tGRID\tSLOPE\tOMEGA")
			for _, prof := range synth.Profiles() {
				for _, name := range config.ListPresets(string(prof)) {
					p := config.GetPreset(string(prof), name)
					fmt.Fprintf(w, "%s/%s\t%d\t%g\t%s\t%g\t%g\n",
						prof, name, p.Steps, p.Dt, p.Shape(), p.Slope, p.Omega)
				}
			}
			return w.Flush()
		},
	}
}

// verify compares the frames of st with the analytic derivative of the
// generated input store named by --verify.
func verify(cmd *cobra.Command, st *stepstore.Store, rep *report.Report) error {
	in, err := openStore(verifyIn)
	if err != nil {
		return err
	}
	defer in.Close()

	m, err := in.NewReader().Manifest()
	if err != nil {
		return fmt.Errorf("verify against %s: %w", verifyIn, err)
	}
	exact, dt, err := synth.AnalyticFromAttributes(m.Attributes)
	if err != nil {
		return fmt.Errorf("verify against %s: %w", verifyIn, err)
	}
	logger.Debug("Verifying derivative",
		zap.String("profile", string(exact.Profile)), zap.Float64("dt", dt))
	return report.Verify(cmd.Context(), st.NewReader(), rep, exact.Derivative, dt)
}
