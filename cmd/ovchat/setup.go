package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"ovchat/internal/acquire"
	"ovchat/internal/session"
)

// setupChoice is what the setup form edits.
type setupChoice struct {
	Model       string
	Device      string
	Variant     string
	Temperature string
}

func choiceFrom(s session.Settings) setupChoice {
	return setupChoice{
		Model:       s.ModelID,
		Device:      s.Device,
		Variant:     string(s.Variant),
		Temperature: strconv.FormatFloat(s.Temperature, 'f', -1, 64),
	}
}

func validateTemperature(s string) error {
	t, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return errors.New("enter a number")
	}
	return session.ValidateTemperature(t)
}

// applyChoice stores every field of c at once; on error nothing changes.
func applyChoice(store *session.Store, c setupChoice) (session.Settings, error) {
	avail := store.Available()
	return store.Apply(func(cur session.Settings) (session.Settings, error) {
		next, err := cur.WithModel(c.Model)
		if err != nil {
			return cur, err
		}
		if next, err = next.WithDevice(c.Device, avail); err != nil {
			return cur, err
		}
		if next, err = next.WithVariant(c.Variant); err != nil {
			return cur, err
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(c.Temperature), 64)
		if err != nil {
			return cur, err
		}
		return next.WithTemperature(t)
	})
}

// runSetup shows the terminal form and applies the result to store.
func runSetup(store *session.Store) error {
	avail := store.Available()
	if len(avail) == 0 {
		return errors.New("no inference device available")
	}
	c := choiceFrom(store.Current())
	variants := make([]string, 0, len(acquire.Variants))
	for _, v := range acquire.Variants {
		variants = append(variants, string(v))
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Model").
			Options(huh.NewOptions(store.Models()...)...).
			Value(&c.Model),
		huh.NewSelect[string]().
			Title("Device").
			Options(huh.NewOptions(avail...)...).
			Value(&c.Device),
		huh.NewSelect[string]().
			Title("Compression").
			Options(huh.NewOptions(variants...)...).
			Value(&c.Variant),
		huh.NewInput().
			Title("Temperature").
			Description("Between 0 and 1").
			Value(&c.Temperature).
			Validate(validateTemperature),
	))
	if err := form.Run(); err != nil {
		return err
	}
	_, err := applyChoice(store, c)
	return err
}
