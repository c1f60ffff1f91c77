// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

// ReduceDevice folds devicestatus pings (in upstream-delivered, newest-first
// order) into one snapshot. Each tracked field takes the value from the first
// ping that supplies it and is then locked against later overwrite; fields
// are independent of each other. Static names come from configuration.
func ReduceDevice(pings []PartialDeviceFields, names DeviceNames) DeviceSnapshot {
	snapshot := DeviceSnapshot{Names: names}

	for _, ping := range pings {
		if snapshot.PumpBattery == nil && ping.PumpBattery != nil {
			snapshot.PumpBattery = ping.PumpBattery
		}
		if snapshot.PumpCartridge == nil && ping.PumpCartridge != nil {
			snapshot.PumpCartridge = ping.PumpCartridge
			snapshot.PumpModel = ping.PumpModel
			snapshot.Timestamp = ping.CartridgeTime
		}
		if snapshot.TransmitterBattery == nil && ping.TransmitterBattery != nil {
			snapshot.TransmitterBattery = ping.TransmitterBattery
		}
		if snapshot.PhoneBattery == nil && ping.PhoneBattery != nil {
			snapshot.PhoneBattery = ping.PhoneBattery
		}
	}

	return snapshot
}
