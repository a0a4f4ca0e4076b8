package playback

import (
	"errors"
	"math"
	"slices"
	"testing"
)

// lookPathFor pretends only the named programs are installed.
func lookPathFor(installed ...string) LookPathFunc {
	return func(file string) (string, error) {
		if slices.Contains(installed, file) {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}
}

func vol(v float64) *float64 { return &v }

func TestCommandFor(t *testing.T) {
	const wav = "/tmp/out/speech.wav"

	tests := []struct {
		name          string
		goos          string
		installed     []string
		volume        *float64
		wantPlayer    string
		wantArgs      []string
		wantEnv       []string
		volumeIgnored bool
		wantErr       error
	}{
		{
			name: "darwin", goos: "darwin", installed: []string{"afplay"},
			wantPlayer: PlayerAfplay, wantArgs: []string{wav},
		},
		{
			name: "darwin volume", goos: "darwin", installed: []string{"afplay"}, volume: vol(0.5),
			wantPlayer: PlayerAfplay, wantArgs: []string{"-v", "0.5", wav},
		},
		{
			name: "linux paplay preferred", goos: "linux", installed: []string{"aplay", "ffplay", "paplay"}, volume: vol(1.5),
			wantPlayer: PlayerPaplay, wantArgs: []string{"--volume=98304", wav},
		},
		{
			name: "linux ffplay", goos: "linux", installed: []string{"aplay", "ffplay"}, volume: vol(1.5),
			wantPlayer: PlayerFfplay, wantArgs: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-volume", "100", wav},
		},
		{
			name: "linux aplay ignores volume", goos: "linux", installed: []string{"aplay"}, volume: vol(0.3),
			wantPlayer: PlayerAplay, wantArgs: []string{"-q", wav}, volumeIgnored: true,
		},
		{
			name: "windows passes path through env", goos: "windows", installed: []string{"powershell"},
			wantPlayer: PlayerPowerShell,
			wantArgs:   []string{"-NoProfile", "-NonInteractive", "-Command", windowsScript},
			wantEnv:    []string{FileEnv + "=" + wav},
		},
		{name: "nothing installed", goos: "linux", wantErr: ErrNoPlayer},
		{name: "volume too high", goos: "darwin", installed: []string{"afplay"}, volume: vol(2.5), wantErr: ErrInvalidVolume},
		{name: "volume negative", goos: "darwin", installed: []string{"afplay"}, volume: vol(-1), wantErr: ErrInvalidVolume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := CommandFor(tt.goos, wav, tt.volume, lookPathFor(tt.installed...))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CommandFor() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CommandFor() error = %v", err)
			}
			if cmd.Player != tt.wantPlayer || cmd.Path != "/usr/bin/"+tt.wantPlayer {
				t.Errorf("player = %s at %s, want %s", cmd.Player, cmd.Path, tt.wantPlayer)
			}
			if !slices.Equal(cmd.Args, tt.wantArgs) {
				t.Errorf("Args = %q, want %q", cmd.Args, tt.wantArgs)
			}
			if !slices.Equal(cmd.Env, tt.wantEnv) {
				t.Errorf("Env = %q, want %q", cmd.Env, tt.wantEnv)
			}
			if cmd.VolumeIgnored != tt.volumeIgnored {
				t.Errorf("VolumeIgnored = %v", cmd.VolumeIgnored)
			}
			if tt.goos == "windows" {
				for _, a := range cmd.Args {
					if a == wav {
						t.Error("windows command line contains the path")
					}
				}
			}
		})
	}
}

func TestPlatformOf(t *testing.T) {
	tests := map[string]Platform{
		"linux":   PlatformLinux,
		"darwin":  PlatformDarwin,
		"windows": PlatformWindows,
		"plan9":   PlatformUnknown,
	}
	for goos, want := range tests {
		if got := platformOf(goos); got != want {
			t.Errorf("platformOf(%q) = %s, want %s", goos, got, want)
		}
	}
}

func TestValidateVolume(t *testing.T) {
	tests := []struct {
		volume *float64
		ok     bool
	}{
		{nil, true},
		{vol(0), true},
		{vol(1), true},
		{vol(2), true},
		{vol(2.01), false},
		{vol(-0.1), false},
		{vol(math.NaN()), false},
	}
	for _, tt := range tests {
		err := ValidateVolume(tt.volume)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateVolume(%v) = %v", tt.volume, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidVolume) {
			t.Errorf("ValidateVolume() = %v, want ErrInvalidVolume", err)
		}
	}
}
