// Package registers holds the semantic metadata for instrument registers.
//
// A Catalog maps a register index to a Descriptor (name, unit, scale).
// Catalogs are built once at startup and never change afterwards; they are
// injected into display consumers (summary, MQTT mirror) and are never
// consulted on the write path. The store persists raw integers, so a
// corrected scale only changes how values are shown, not what is on disk.
//
// # Scaling
//
// A Descriptor with ScaleTenth means physical = raw / 10.0:
//
//	cat := registers.Inverter()
//	d, _ := cat.Describe(7)     // {Name: "Battery voltage", Unit: "V", Scale: ScaleTenth}
//	v := d.Scale.Apply(512)     // 51.2
//
// # Catalog files
//
// Catalogs can also be loaded from YAML:
//
//	registers:
//	  - index: 7
//	    name: Battery voltage
//	    unit: V
//	    scale: 10
package registers
