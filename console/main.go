// Command console is an interactive terminal front end for the voice capture
// client: Enter toggles recording, transcribed exchanges print as they arrive.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"example.com/voice_capture/client"
	"example.com/voice_capture/pkg/auth"
	"example.com/voice_capture/pkg/recorder"
	"example.com/voice_capture/pkg/session"
	"example.com/voice_capture/pkg/speech"
)

func main() {
	godotenv.Load()

	serverURL := flag.String("server", "ws://localhost:8000/ws/audio/", "websocket endpoint")
	token := flag.String("token", "", "bearer token (defaults to "+auth.DefaultEnvKey+" env var)")
	speak := flag.Bool("speak", false, "speak responses aloud via ElevenLabs (needs ELEVENLABS_API_KEY)")
	flag.Parse()

	var tokens auth.TokenProvider = auth.Env{}
	if *token != "" {
		tokens = auth.Static(*token)
	}

	cfg := client.Config{
		ServerURL: *serverURL,
		Tokens:    tokens,
	}
	if *speak {
		player := speech.NewPlayer()
		if err := player.Open(); err != nil {
			log.Printf("playback disabled: %v", err)
		} else {
			defer player.Close()
			cfg.Synthesizer = speech.NewElevenLabs(speech.ElevenLabsConfig{
				APIKey:   os.Getenv("ELEVENLABS_API_KEY"),
				Playback: player.Play,
			})
		}
	}

	vc, err := client.New(cfg)
	if err != nil {
		log.Fatalf("assemble client: %v", err)
	}
	defer vc.Close()

	vc.OnStatus(func(msg string) {
		fmt.Printf("-- %s\n", msg)
	})
	vc.OnConversation(func(user, assistant string) {
		fmt.Printf("you:       %s\n", user)
		fmt.Printf("assistant: %s\n", assistant)
	})

	if err := vc.Connect(); err != nil {
		// A missing credential is fatal; dial failures retry in the background.
		if errors.Is(err, session.ErrNoCredential) {
			log.Fatalf("connect: %v (set %s or pass -token)", err, auth.DefaultEnvKey)
		}
		log.Printf("connect: %v", err)
	}

	fmt.Println("press Enter to start/stop recording, Ctrl-C to quit")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- struct{}{}
		}
		close(lines)
	}()

	for {
		select {
		case <-sigs:
			fmt.Println("\nshutting down")
			return
		case _, ok := <-lines:
			if !ok {
				return
			}
			vc.Toggle()
			if vc.RecordingState() == recorder.StateRecording {
				fmt.Println("-- recording (Enter or 2s of silence to stop)")
			}
		}
	}
}
