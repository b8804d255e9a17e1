package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/model"
)

var specializations = []string{
	"General Dentistry",
	"Orthodontics",
	"Endodontics",
	"Periodontics",
	"Pediatric Dentistry",
	"Oral Surgery",
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo dentists, rooms and today's bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("location")
			dentists, _ := cmd.Flags().GetInt("dentists")
			rooms, _ := cmd.Flags().GetInt("rooms")
			bookings, _ := cmd.Flags().GetInt("bookings")
			seed, _ := cmd.Flags().GetUint64("seed")

			return withApp(cmd, func(ctx context.Context, a *app.App, actor string) error {
				s := &seeder{a: a, faker: gofakeit.New(seed), location: location, actor: actor}
				if err := s.dentists(ctx, dentists); err != nil {
					return fmt.Errorf("seed dentists: %w", err)
				}
				if err := s.rooms(ctx, rooms); err != nil {
					return fmt.Errorf("seed rooms: %w", err)
				}
				if err := s.bookings(ctx, bookings); err != nil {
					return fmt.Errorf("seed bookings: %w", err)
				}
				fmt.Printf("seeded %d dentists, %d rooms, %d bookings at %s\n", dentists, rooms, bookings, location)
				return nil
			})
		},
	}
	cmd.Flags().StringP("location", "l", "main", "clinic location")
	cmd.Flags().Int("dentists", 3, "dentists to create")
	cmd.Flags().Int("rooms", 2, "rooms to create")
	cmd.Flags().Int("bookings", 10, "appointments to book for today")
	cmd.Flags().Uint64("seed", 0, "random seed, 0 picks one")
	return cmd
}

type seeder struct {
	a        *app.App
	faker    *gofakeit.Faker
	location string
	actor    string
}

func (s *seeder) dentists(ctx context.Context, n int) error {
	var schedule model.WeeklySchedule
	for d := time.Monday; d <= time.Saturday; d++ {
		schedule = append(schedule, model.ShiftWindow{Weekday: d, Start: "08:00", End: "17:00"})
	}
	for i := 0; i < n; i++ {
		_, err := s.a.Services.Resources.CreateDentist(ctx, &model.CreateDentistRequest{
			Name:           "Dr. " + s.faker.Name(),
			ClinicLocation: s.location,
			Specialization: specializations[s.faker.Number(0, len(specializations)-1)],
			Schedule:       schedule,
		}, s.actor)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) rooms(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		_, err := s.a.Services.Resources.CreateRoom(ctx, &model.CreateRoomRequest{
			Name:           fmt.Sprintf("Operatory %d", i+1),
			ClinicLocation: s.location,
			Capacity:       1,
		}, s.actor)
		if err != nil {
			return err
		}
	}
	return nil
}

// bookings spreads appointments over today's clinic hours in 20 minute slots.
func (s *seeder) bookings(ctx context.Context, n int) error {
	today := time.Now().In(s.a.Config.Queue.Location())
	slot := time.Date(today.Year(), today.Month(), today.Day(), 9, 0, 0, 0, today.Location())
	for i := 0; i < n; i++ {
		email := s.faker.Email()
		_, err := s.a.Services.Engine.Book(ctx, &model.CreateAppointmentRequest{
			PatientName:    s.faker.Name(),
			PatientPhone:   s.faker.Phone(),
			PatientEmail:   &email,
			ClinicLocation: s.location,
			Date:           slot.Format(model.DateLayout),
			Time:           slot.Format(model.TimeLayout),
		}, s.actor)
		if err != nil {
			return err
		}
		slot = slot.Add(20 * time.Minute)
	}
	return nil
}
