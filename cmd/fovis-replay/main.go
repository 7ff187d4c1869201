// Command fovis-replay drives a Controller over a directory of grayscale
// PNG frames, printing the accumulated pose after each one. It is a thin
// harness around the odometry package, not part of the engine itself.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	xdraw "golang.org/x/image/draw"

	"github.com/Simsdebims/fovis/calib"
	"github.com/Simsdebims/fovis/depth"
	"github.com/Simsdebims/fovis/internal/logging"
	"github.com/Simsdebims/fovis/odometry"
	"github.com/Simsdebims/fovis/pyramid"
)

func main() {
	var (
		dir        = flag.String("dir", "", "directory of grayscale PNG frames, sorted by filename")
		fx         = flag.Float64("fx", 500, "camera focal length x")
		fy         = flag.Float64("fy", 500, "camera focal length y")
		depthVal   = flag.Float64("depth", 2.0, "constant assumed scene depth in meters (no depth source supplied)")
		overlayDir = flag.String("overlay-dir", "", "if set, write a 2x-upsampled PNG per frame with detected keypoints marked")
	)
	flag.Parse()

	logger := logging.NewLogger("fovis-replay")
	if *dir == "" {
		logger.Errorf("usage: fovis-replay -dir <frames-directory>")
		os.Exit(1)
	}

	frames, err := listFrames(*dir)
	if err != nil {
		logger.Errorf("listing frames: %v", err)
		os.Exit(1)
	}
	if len(frames) == 0 {
		logger.Errorf("no frames found in %s", *dir)
		os.Exit(1)
	}

	width, height, err := probeSize(frames[0])
	if err != nil {
		logger.Errorf("probing frame size: %v", err)
		os.Exit(1)
	}

	intr := calib.Intrinsics{
		Width: width, Height: height,
		Fx: *fx, Fy: *fy,
		Cx: float64(width) / 2, Cy: float64(height) / 2,
	}
	if err := intr.Validate(); err != nil {
		logger.Errorf("invalid intrinsics: %v", err)
		os.Exit(1)
	}

	controller := odometry.New(intr, odometry.DefaultOptions(), logger)
	depthSource := depth.NewDepthImage(intr, width, height, 0.5)
	for i := range depthSource.Depth {
		depthSource.Depth[i] = *depthVal
	}

	if *overlayDir != "" {
		if err := os.MkdirAll(*overlayDir, 0o755); err != nil {
			logger.Errorf("creating overlay directory: %v", err)
			os.Exit(1)
		}
	}

	for i, path := range frames {
		gray, stride, err := loadGrayscale(path, width, height)
		if err != nil {
			logger.Errorf("loading %s: %v", path, err)
			os.Exit(1)
		}
		out := controller.ProcessFrame(gray, stride, depthSource)
		fmt.Printf("frame %d (%s): valid=%v inliers=%d pose_t=(%.4f,%.4f,%.4f)\n",
			i, filepath.Base(path), out.Valid, out.InlierCount,
			out.Pose.Translation.X, out.Pose.Translation.Y, out.Pose.Translation.Z)

		if *overlayDir != "" {
			overlayPath := filepath.Join(*overlayDir, fmt.Sprintf("overlay-%04d.png", i))
			if err := dumpOverlay(overlayPath, gray, width, height, controller.CurrentKeypoints()); err != nil {
				logger.Warnf("writing overlay for frame %d: %v", i, err)
			}
		}
	}
}

// dumpOverlay writes a 2x-upsampled copy of a grayscale frame with small
// red squares marking the current frame's level-0 keypoints, as a
// diagnostic aid for tuning FAST-threshold and bucketing parameters.
func dumpOverlay(path string, gray []byte, width, height int, kps []pyramid.KeypointData) error {
	src := image.NewGray(image.Rect(0, 0, width, height))
	copy(src.Pix, gray)

	dst := image.NewRGBA(image.Rect(0, 0, width*2, height*2))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	marker := image.NewUniform(color.RGBA{R: 255, A: 255})
	const half = 2
	for _, kp := range kps {
		cx, cy := int(kp.U*2), int(kp.V*2)
		box := image.Rect(cx-half, cy-half, cx+half, cy+half).Intersect(dst.Bounds())
		if box.Empty() {
			continue
		}
		draw.Draw(dst, box, marker, image.Point{}, draw.Over)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, dst)
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".png" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func probeSize(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// loadGrayscale decodes a PNG and returns a tightly packed 8-bit
// grayscale buffer plus its row stride.
func loadGrayscale(path string, width, height int) ([]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, 0, err
	}
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return nil, 0, fmt.Errorf("frame size %dx%d does not match expected %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	}
	buf := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray := (r>>8 + g>>8 + b>>8) / 3
			buf[y*width+x] = byte(gray)
		}
	}
	return buf, width, nil
}
