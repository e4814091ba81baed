// rigtool is a CLI utility for inspecting rigged and animated models.
package main

import (
	"errors"
	"flag"
	"fmt"
	gomath "math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/Faultbox/rigview/internal/assets"
	"github.com/Faultbox/rigview/internal/config"
	"github.com/Faultbox/rigview/internal/engine/model"
	"github.com/Faultbox/rigview/internal/engine/node"
	"github.com/Faultbox/rigview/internal/engine/scene"
	"github.com/Faultbox/rigview/internal/logger"
	"github.com/Faultbox/rigview/pkg/formats"
)

func main() {
	config.ParseFlags()
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "info":
		if cfg.Scene.Watch {
			cmdWatch(cfg, args)
			return
		}
		cmdInfo(cfg, args)
	case "nodes", "tree":
		cmdNodes(cfg, args)
	case "sample":
		cmdSample(cfg, args)
	case "dump":
		cmdDump(cfg, args)
	case "watch":
		cmdWatch(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`rigtool - rigged model inspection utility

Usage:
  rigtool [-config file] [-model path] [-watch] [-debug] <command> [options]

The model argument may be omitted when -model or scene.path in the config
file names one. With -watch or scene.watch, info keeps running like watch.

Commands:
  info <model>                           Show counts, bounds and animations
  nodes <model>                          Print the node hierarchy
  sample [-anim N] [-t T] [-node name] <model>
                                         Evaluate one frame and print transforms
  dump <model> [node]                    Dump the imported source structure
  watch <model>                          Print info again whenever the file changes

Examples:
  rigtool info robot.glb
  rigtool sample -anim 1 -t 0.5 -node forearm.L robot.glb
  rigtool dump robot.glb hips`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

var errNoModel = errors.New("no model given and scene.path is not set")

// modelPath returns the positional model argument, falling back to the
// configured scene path.
func modelPath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if cfg.Scene.Path != "" {
		return cfg.Scene.Path, nil
	}
	return "", errNoModel
}

// playbackTime maps seconds to animation time: scaled by the configured
// speed, then wrapped to the clip length when looping or held at its ends
// otherwise.
func playbackTime(ac config.AnimationConfig, a *model.Animation, seconds float64) float64 {
	t := seconds * ac.Speed
	if a == nil || a.Duration <= 0 {
		return t
	}
	length := a.Duration / a.Ticks(1)
	if ac.Loop {
		t = gomath.Mod(t, length)
		if t < 0 {
			t += length
		}
		return t
	}
	return gomath.Min(gomath.Max(t, 0), length)
}

// newManager creates an asset manager searching the model's directory first
// and then the configured roots.
func newManager(cfg *config.Config, path string) *assets.Manager {
	m := assets.NewManager(logger.Named("assets"))
	for _, root := range cfg.Scene.SearchPaths {
		if err := m.AddRoot(root); err != nil {
			logger.Warn("skipping search path", zap.String("path", root), zap.Error(err))
		}
	}
	if err := m.AddRoot(filepath.Dir(path)); err != nil {
		logger.Warn("skipping model directory", zap.Error(err))
	}
	return m
}

// loadScene imports and builds a model. Texture handles are the raw file bytes.
func loadScene(cfg *config.Config, m *assets.Manager, path string) (*formats.Scene, *scene.Scene, error) {
	full, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	src, err := formats.OpenGLTF(full)
	if err != nil {
		return nil, nil, err
	}

	s, err := scene.Build(src,
		scene.WithLogger(logger.Named("scene")),
		scene.WithTextureLoader(func(p string) (any, error) { return m.Load(p) }),
	)
	if err != nil {
		return nil, nil, err
	}

	s.EnableSkinning(cfg.Render.Skinning)
	s.EnableMaterials(cfg.Render.Materials)
	s.EnableTextures(cfg.Render.Textures)
	s.EnableAnimation(cfg.Animation.Enabled)
	s.SetAnimation(cfg.Animation.Index)

	return src, s, nil
}

func cmdInfo(cfg *config.Config, args []string) {
	path, err := modelPath(cfg, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: rigtool info <model>")
		os.Exit(1)
	}

	m := newManager(cfg, path)
	src, s, err := loadScene(cfg, m, path)
	if err != nil {
		fatal(err)
	}
	printInfo(path, src, s)
}

func printInfo(path string, src *formats.Scene, s *scene.Scene) {
	st := src.Stats()
	b := s.Bounds()

	fmt.Printf("Model:      %s\n", path)
	fmt.Printf("Nodes:      %d\n", st.Nodes)
	fmt.Printf("Meshes:     %d\n", st.Meshes)
	fmt.Printf("Vertices:   %d\n", st.Vertices)
	fmt.Printf("Faces:      %d\n", st.Faces)
	fmt.Printf("Bones:      %d\n", st.Bones)
	if b.IsEmpty() {
		fmt.Println("Bounds:     (empty)")
	} else {
		fmt.Printf("Bounds:     min %v max %v\n", b.Min.Array(), b.Max.Array())
		fmt.Printf("Size:       %v\n", b.Size().Array())
	}
	fmt.Println()

	fmt.Printf("Animations: %d\n", st.Animations)
	for i, a := range s.Animations() {
		motion := ""
		if !a.HasMotion() {
			motion = " (static)"
		}
		fmt.Printf("  [%d] %-24s %8.2f ticks @ %g/s  %d channels%s\n",
			i, a.Name, a.Duration, a.TicksPerSecond, len(a.Channels), motion)
	}
}

func cmdNodes(cfg *config.Config, args []string) {
	path, err := modelPath(cfg, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: rigtool nodes <model>")
		os.Exit(1)
	}

	m := newManager(cfg, path)
	_, s, err := loadScene(cfg, m, path)
	if err != nil {
		fatal(err)
	}

	meshCount := make(map[*node.Node]int)
	for _, mn := range s.MeshNodes() {
		meshCount[mn.Node] = len(mn.Meshes)
	}

	s.Root().Walk(func(n *node.Node, depth int) bool {
		suffix := ""
		if c := meshCount[n]; c > 0 {
			suffix = fmt.Sprintf("  [%d meshes]", c)
		}
		fmt.Printf("%s%s  %v%s\n", strings.Repeat("  ", depth), n.Name(), n.DerivedPosition().Array(), suffix)
		return true
	})
}

func cmdSample(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	anim := fs.Int("anim", cfg.Animation.Index, "Animation index")
	t := fs.Float64("t", 0, "Time in seconds")
	name := fs.String("node", "", "Only print this node")
	fs.Parse(args)

	path, err := modelPath(cfg, fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: rigtool sample [-anim N] [-t T] [-node name] <model>")
		os.Exit(1)
	}

	m := newManager(cfg, path)
	_, s, err := loadScene(cfg, m, path)
	if err != nil {
		fatal(err)
	}

	s.SetAnimation(*anim)
	s.SetTime(playbackTime(cfg.Animation, s.Animation(), *t))
	s.Update()

	if a := s.Animation(); a != nil {
		fmt.Printf("Animation [%d] %s at t=%g (%g ticks)\n", s.AnimationIndex(), a.Name, s.Time(), a.Ticks(s.Time()))
	}

	show := func(n *node.Node) {
		fmt.Printf("%-24s pos %v rot %v scale %v\n",
			n.Name(), n.DerivedPosition().Array(), n.DerivedOrientation(), n.DerivedScale().Array())
	}

	if *name != "" {
		n, ok := s.Node(*name)
		if !ok {
			fatal(fmt.Errorf("node %q not found", *name))
		}
		show(n)
		return
	}
	for _, nodeName := range s.NodeNames() {
		n, _ := s.Node(nodeName)
		show(n)
	}

	if b := s.CurrentBounds(); !b.IsEmpty() {
		fmt.Printf("\nPosed bounds: min %v max %v\n", b.Min.Array(), b.Max.Array())
	}
}

func cmdDump(cfg *config.Config, args []string) {
	path, err := modelPath(cfg, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: rigtool dump <model> [node]")
		os.Exit(1)
	}

	src, err := formats.OpenGLTF(path)
	if err != nil {
		fatal(err)
	}

	dumper := spew.ConfigState{Indent: "  ", MaxDepth: 4, DisablePointerAddresses: true, SortKeys: true}

	if len(args) < 2 {
		dumper.Dump(src.Stats())
		dumper.Dump(src.Root)
		return
	}

	var found *formats.Node
	src.Root.Walk(func(n *formats.Node, _ int) {
		if found == nil && n.Name == args[1] {
			found = n
		}
	})
	if found == nil {
		fatal(fmt.Errorf("node %q not found", args[1]))
	}
	dumper.Dump(found)
	for _, mi := range found.Meshes {
		if mi >= 0 && mi < len(src.Meshes) {
			dumper.Dump(src.Meshes[mi].Name, len(src.Meshes[mi].Positions), len(src.Meshes[mi].Bones))
		}
	}
}

func cmdWatch(cfg *config.Config, args []string) {
	name, err := modelPath(cfg, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: rigtool watch <model>")
		os.Exit(1)
	}
	path, err := filepath.Abs(name)
	if err != nil {
		fatal(err)
	}

	m := newManager(cfg, path)
	w, err := assets.NewWatcher(m, cfg.Render.FrameTime*6)
	if err != nil {
		fatal(err)
	}
	defer w.Close()
	if err := w.Watch(path); err != nil {
		fatal(err)
	}

	reload := func() {
		src, s, err := loadScene(cfg, m, path)
		if err != nil {
			logger.Error("reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		printInfo(path, src, s)
		fmt.Println()
	}
	reload()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	for {
		select {
		case ch, ok := <-w.Events():
			if !ok {
				return
			}
			logger.Info("reloading", zap.String("path", ch.Path))
			reload()
		case <-interrupt:
			return
		}
	}
}
