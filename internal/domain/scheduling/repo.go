package scheduling

import "context"

// Repository is the persistence boundary of the scheduling engine. The
// service loads a full snapshot at startup and writes each mutation through
// after it has been applied in memory.
type Repository interface {
	ListAppointments(ctx context.Context) ([]Appointment, error)
	// SaveAppointments upserts the given appointments in one round trip.
	SaveAppointments(ctx context.Context, appts ...Appointment) error
	DeleteAppointment(ctx context.Context, id string) error

	ListWorkingWindows(ctx context.Context) ([]WorkingWindow, error)
	ReplaceWorkingWindows(ctx context.Context, psychologistID string, windows []WorkingWindow) error

	ListRooms(ctx context.Context) ([]Room, error)
	SaveRoom(ctx context.Context, r Room) error
}
