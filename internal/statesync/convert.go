package statesync

import (
	"time"

	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/internal/storage"
)

func driverRecordFromRow(row storage.DriverRow) driverstore.Record {
	return driverstore.Record{
		DriverID:         row.DriverID,
		UserID:           row.UserID,
		Name:             row.Name,
		Phone:            row.Phone,
		VehicleNumber:    row.VehicleNumber,
		VehicleModel:     row.VehicleModel,
		VehicleType:      row.VehicleType,
		Rating:           row.Rating,
		IsOnline:         row.IsOnline,
		IsActive:         row.IsActive,
		IsVerified:       row.IsVerified,
		OnboardingStatus: row.Onboarding,
		Lat:              row.Lat,
		Lng:              row.Lng,
		H3Index:          row.H3Index,
		Heading:          row.Heading,
		Speed:            row.Speed,
		LastActiveAt:     row.LastActiveAt,
	}
}

func driverRowFromRecord(rec driverstore.Record) storage.DriverRow {
	return storage.DriverRow{
		DriverID:      rec.DriverID,
		UserID:        rec.UserID,
		Name:          rec.Name,
		Phone:         rec.Phone,
		VehicleNumber: rec.VehicleNumber,
		VehicleModel:  rec.VehicleModel,
		VehicleType:   rec.VehicleType,
		Rating:        rec.Rating,
		IsOnline:      rec.IsOnline,
		IsActive:      rec.IsActive,
		IsVerified:    rec.IsVerified,
		Onboarding:    rec.OnboardingStatus,
		Lat:           rec.Lat,
		Lng:           rec.Lng,
		H3Index:       rec.H3Index,
		Heading:       rec.Heading,
		Speed:         rec.Speed,
		LastActiveAt:  rec.LastActiveAt,
	}
}

func rideRecordFromRow(row storage.RideRow) ridestore.Record {
	rec := ridestore.Record{
		RideID:        row.RideID,
		PassengerID:   row.PassengerID,
		PickupLat:     row.PickupLat,
		PickupLng:     row.PickupLng,
		PickupAddress: row.PickupAddress,
		DropLat:       row.DropLat,
		DropLng:       row.DropLng,
		DropAddress:   row.DropAddress,
		PickupH3:      row.PickupH3,
		Fare: ridestore.FareBreakdown{
			Base:     row.FareBase,
			Distance: row.FareDistance,
			Time:     row.FareTime,
			Surge:    row.FareSurge,
			Total:    row.FareTotal,
		},
		Distance:      row.Distance,
		Duration:      row.Duration,
		RideOtp:       row.RideOtp,
		PaymentMethod: row.PaymentMethod,
		VehicleType:   row.VehicleType,
		Status:        ridestore.Status(row.Status),
		CreatedAt:     row.CreatedAt,
		AssignedAt:    row.AssignedAt,
		ConfirmedAt:   row.ConfirmedAt,
		ArrivedAt:     row.ArrivedAt,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
		CancelledAt:   row.CancelledAt,
	}
	if row.DriverID != nil {
		rec.DriverID = *row.DriverID
	}
	if row.CancelledBy != nil {
		rec.CancelledBy = *row.CancelledBy
	}
	if row.CancellationReason != nil {
		rec.CancellationReason = *row.CancellationReason
	}
	if row.DriverName != nil {
		rec.DriverName = *row.DriverName
	}
	if row.DriverVehicle != nil {
		rec.DriverVehicle = *row.DriverVehicle
	}
	if row.DriverRating != nil {
		rec.DriverRating = *row.DriverRating
	}
	if row.PassengerName != nil {
		rec.PassengerName = *row.PassengerName
	}
	return rec
}

func rideRowFromRecord(rec ridestore.Record) storage.RideRow {
	row := storage.RideRow{
		RideID:        rec.RideID,
		PassengerID:   rec.PassengerID,
		PickupLat:     rec.PickupLat,
		PickupLng:     rec.PickupLng,
		PickupAddress: rec.PickupAddress,
		DropLat:       rec.DropLat,
		DropLng:       rec.DropLng,
		DropAddress:   rec.DropAddress,
		PickupH3:      rec.PickupH3,
		FareBase:      rec.Fare.Base,
		FareDistance:  rec.Fare.Distance,
		FareTime:      rec.Fare.Time,
		FareSurge:     rec.Fare.Surge,
		FareTotal:     rec.Fare.Total,
		Distance:      rec.Distance,
		Duration:      rec.Duration,
		RideOtp:       rec.RideOtp,
		PaymentMethod: rec.PaymentMethod,
		VehicleType:   rec.VehicleType,
		Status:        string(rec.Status),
		CreatedAt:     rec.CreatedAt,
		AssignedAt:    rec.AssignedAt,
		ConfirmedAt:   rec.ConfirmedAt,
		ArrivedAt:     rec.ArrivedAt,
		StartedAt:     rec.StartedAt,
		CompletedAt:   rec.CompletedAt,
		CancelledAt:   rec.CancelledAt,
	}
	if rec.DriverID != "" {
		row.DriverID = &rec.DriverID
	}
	if rec.CancelledBy != "" {
		row.CancelledBy = &rec.CancelledBy
	}
	if rec.CancellationReason != "" {
		row.CancellationReason = &rec.CancellationReason
	}
	if rec.DriverName != "" {
		row.DriverName = &rec.DriverName
	}
	if rec.DriverVehicle != "" {
		row.DriverVehicle = &rec.DriverVehicle
	}
	if rec.DriverRating != 0 {
		row.DriverRating = &rec.DriverRating
	}
	if rec.PassengerName != "" {
		row.PassengerName = &rec.PassengerName
	}
	return row
}

func earningsFromRecord(rec ridestore.Record, commissionRate float64) storage.EarningsRow {
	commission := rec.Fare.Total * commissionRate
	return storage.EarningsRow{
		RideID:     rec.RideID,
		DriverID:   rec.DriverID,
		TotalFare:  rec.Fare.Total,
		Commission: commission,
		NetAmount:  rec.Fare.Total - commission,
		CreatedAt:  time.Now(),
	}
}
