package model

// Category is the HomeKit accessory category.
type Category int

// CategoryGarageDoorOpener is HomeKit category 4.
const CategoryGarageDoorOpener Category = 4

// ServiceType identifies a HomeKit service by its short UUID.
type ServiceType string

const (
	ServiceAccessoryInformation ServiceType = "3E"
	ServiceGarageDoorOpener     ServiceType = "41"
)

// Service groups characteristics. Membership is fixed at construction.
type Service struct {
	Type            ServiceType
	Primary         bool
	Characteristics []ID
}

// Accessory is the top-level addressable device.
type Accessory struct {
	ID       uint64
	Category Category
	Services []Service
}

// GateAccessory returns the static accessory tree: an information service and
// a primary garage door opener service carrying the lock characteristics.
func GateAccessory() Accessory {
	return Accessory{
		ID:       1,
		Category: CategoryGarageDoorOpener,
		Services: []Service{
			{
				Type:            ServiceAccessoryInformation,
				Characteristics: []ID{Name, Manufacturer, SerialNumber, Model, FirmwareRevision, Identify},
			},
			{
				Type:    ServiceGarageDoorOpener,
				Primary: true,
				Characteristics: []ID{
					CurrentDoorState, TargetDoorState, ObstructionDetected,
					Name, LockCurrentState, LockTargetState,
				},
			},
		},
	}
}

// Contains reports whether any service of a exposes id.
func (a Accessory) Contains(id ID) bool {
	for _, s := range a.Services {
		for _, c := range s.Characteristics {
			if c == id {
				return true
			}
		}
	}
	return false
}
