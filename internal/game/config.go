// Package game runs the puck simulation on top of a session transport.
package game

// Config holds game engine configuration.
type Config struct {
	TickRate    int     // Ticks per second (default: 60)
	SendRate    int     // Position updates per second (default: 20)
	FullSync    int     // Send unchanged positions every FullSync updates (default: 20)
	TableWidth  float32 // Table bounds (default: 800)
	TableHeight float32 // Table bounds (default: 600)
	PuckRadius  float32 // default: 15
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickRate:    60,
		SendRate:    20,
		FullSync:    20,
		TableWidth:  800,
		TableHeight: 600,
		PuckRadius:  15,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.SendRate <= 0 || c.SendRate > c.TickRate {
		c.SendRate = min(def.SendRate, c.TickRate)
	}
	if c.FullSync <= 0 {
		c.FullSync = def.FullSync
	}
	if c.TableWidth <= 0 {
		c.TableWidth = def.TableWidth
	}
	if c.TableHeight <= 0 {
		c.TableHeight = def.TableHeight
	}
	if c.PuckRadius <= 0 {
		c.PuckRadius = def.PuckRadius
	}
	return c
}
