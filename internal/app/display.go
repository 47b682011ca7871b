package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_walker/internal/config"
	"github.com/relabs-tech/inertial_walker/internal/walk"
)

// displayData holds the latest walker status for the OLED.
type displayData struct {
	mu     sync.RWMutex
	status walk.Status
	have   bool
}

func (d *displayData) set(st walk.Status) {
	d.mu.Lock()
	d.status = st
	d.have = true
	d.mu.Unlock()
}

func (d *displayData) get() (walk.Status, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status, d.have
}

// RunDisplay mirrors the walker status topic onto the rig's SSD1306.
func RunDisplay() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	data := &displayData{}
	if err := subscribe(client, cfg.TopicStatus, func(payload []byte) {
		st, err := decodeStatus(payload)
		if err != nil {
			log.Printf("display: status unmarshal error: %v", err)
			return
		}
		data.set(st)
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		st, have := data.get()
		if err := dev.Draw(dev.Bounds(), renderStatus(st, have), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func decodeStatus(payload []byte) (walk.Status, error) {
	var st walk.Status
	err := json.Unmarshal(payload, &st)
	return st, err
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// statusLines lays out a status in five rows of at most 18 characters.
func statusLines(st walk.Status) []string {
	head := "IDLE"
	if st.State == walk.StateWalking {
		head = fmt.Sprintf("WALK %ds %s", st.ElapsedMs/1000, st.Direction)
	}
	next := st.NextAnchor
	if next == "" {
		next = "-"
	}
	return []string{
		head,
		fmt.Sprintf("S:%d D:%.1fm", st.StepCount, st.DistanceM),
		fmt.Sprintf("H:%.1f %s", st.HeadingDeg, st.Accuracy),
		fmt.Sprintf("%.1f,%.1f F%d", st.X, st.Y, st.Z),
		fmt.Sprintf("Next:%s A:%d", next, st.AnchorsMarked),
	}
}

func renderStatus(st walk.Status, have bool) *image1bit.VerticalLSB {
	img, drawer := newCanvas()
	if !have {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawString("Walker")
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting...")
		return img
	}
	for i, line := range statusLines(st) {
		drawer.Dot = fixed.P(0, 12+i*13)
		drawer.DrawString(line)
	}
	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawString("Inertial Pi")

	drawer.Dot = fixed.P(20, 43)
	drawer.DrawString("PDR walker")

	return img
}
