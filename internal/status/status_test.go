package status

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/device"
)

type scriptedDialer struct {
	replies map[string]string
}

func (d scriptedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		reader := bufio.NewReader(server)
		line, _ := reader.ReadString('\n')
		cmd := line
		for k := range d.replies {
			if len(line) >= len(k) && line[:len(k)] == k {
				cmd = k
				break
			}
		}
		server.Write([]byte(d.replies[cmd]))
	}()
	return client, nil
}

func TestRefreshTelescopeSuccess(t *testing.T) {
	dialer := scriptedDialer{replies: map[string]string{
		"lst":        "DONE 'lst': 3.5\n",
		"domestatus": "DONE 'open': True\n",
		"posrd":      "DONE 'ra': 5.0, 'dec': 10.0\n",
		"getfocus":   "DONE 'focus': 12.5\n",
		"filter":     "DONE 'filter': 'clear'\n",
		"weather":    "DONE 'temp': 15.0, 'humidity': 40.0, 'wind_speed': 5.0, 'wind_dir': 180.0, 'dew_point': 2.0\n",
	}}
	tr := &device.Transport{Dialer: dialer, MaxBufSize: 4096}
	tele := device.NewTelescopeAdapter(tr, "tele", 6000, time.Second)

	mgr := NewManager(config.Default().Weather)
	now := time.Date(2026, 6, 21, 5, 0, 0, 0, time.UTC)
	if err := mgr.RefreshTelescope(context.Background(), tele, now); err != nil {
		t.Fatalf("RefreshTelescope: %v", err)
	}

	got := mgr.Telescope()
	if !got.Ready {
		t.Error("Ready = false, want true")
	}
	if got.LSTHr != 3.5 {
		t.Errorf("LSTHr = %v, want 3.5", got.LSTHr)
	}
	if !got.DomeOpen {
		t.Error("DomeOpen = false, want true")
	}
	if got.Filter != "clear" {
		t.Errorf("Filter = %q, want clear", got.Filter)
	}
	if mgr.BadWeather() {
		t.Error("BadWeather() = true for a calm, dome-open reading")
	}
}

func TestBadWeatherWhenNotReady(t *testing.T) {
	mgr := NewManager(config.Default().Weather)
	if !mgr.BadWeather() {
		t.Error("BadWeather() should be true before any successful refresh")
	}
}

func TestBadWeatherThresholds(t *testing.T) {
	cfg := config.WeatherConfig{MaxWindKPH: 10, MinDewGapC: 3, MaxHumidityPct: 80}
	mgr := NewManager(cfg)
	mgr.tele = TelescopeStatus{
		Ready:    true,
		DomeOpen: true,
		Weather:  device.WeatherReading{TempC: 10, DewPointC: 9, WindSpeedKPH: 2, HumidityPct: 50},
	}
	if !mgr.BadWeather() {
		t.Error("dew point gap of 1 < MinDewGapC=3 should be bad weather")
	}
}

func TestCameraSubStateAgreement(t *testing.T) {
	cam := CameraStatus{}
	cam.SubStates[0] = AllPositive
	cam.SubStates[1] = AllNegative
	cam.SubStates[2] = 0x3

	if agree, val := cam.Agrees(cameraSubStateNames[0]); !agree || !val {
		t.Errorf("Agrees(%s) = (%v,%v), want (true,true)", cameraSubStateNames[0], agree, val)
	}
	if agree, val := cam.Agrees(cameraSubStateNames[1]); !agree || val {
		t.Errorf("Agrees(%s) = (%v,%v), want (true,false)", cameraSubStateNames[1], agree, val)
	}
	if agree, _ := cam.Agrees(cameraSubStateNames[2]); agree {
		t.Errorf("Agrees(%s) should be false for a split 0x3 mask", cameraSubStateNames[2])
	}
}
