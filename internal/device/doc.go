// Package device provides the Device Registry for the field simulator.
//
// The registry is the authoritative in-memory catalogue of simulated field
// devices: soil moisture sensors, irrigation controllers and environmental
// monitors. For each device it owns three things:
//
//   - Device: identity and configuration (settings, location, calibration)
//   - SensorState: the simulated physical reading, bounded to [5, 95] %
//   - the irrigation event log, in insertion order
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                          Device Registry                         │
//	│                                                                  │
//	│  ┌────────────────────┐   ┌──────────────────┐  ┌─────────────┐  │
//	│  │      Registry      │   │    Repository    │  │ Validation  │  │
//	│  │   (registry.go)    │──▶│ (repository.go)  │  │(validation) │  │
//	│  │                    │   │                  │  │             │  │
//	│  │ • map + RWMutex    │   │ • SQLite snapshot│  │ • settings  │  │
//	│  │ • per-device locks │   │ • save / load    │  │ • sensor ids│  │
//	│  │ • event log        │   └──────────────────┘  └─────────────┘  │
//	│  └────────────────────┘                                          │
//	└──────────────────────────────────────────────────────────────────┘
//	       ▲             ▲                ▲
//	   telemetry     irrigation        history
//	   (read path)   (write path)      (pure reads)
//
// # Thread Safety
//
// The device map has its own lock and every device has another. Mutations
// of one device (settings update, calibration, event append, completion)
// are each a single critical section on that device's lock, so readers
// never see a torn write and unrelated devices proceed independently.
// Every method returns copies.
//
// # Usage
//
//	registry := device.NewRegistry(simulation.NewRandomSource(0), simulation.RealClock{})
//	registry.SetLogger(log)
//
//	dev, err := registry.Register(ctx, device.RegisterRequest{
//	    Name:     "North Field Probe",
//	    Type:     device.TypeSoilMoisture,
//	    Location: device.Location{Latitude: 44.7, Longitude: 8.03, Field: "north"},
//	})
//
//	nearby, _ := registry.ListNear(ctx, 44.7, 8.03, 5)
package device
