package firmware

// Classifier classifies inbound lines of one connection.
//
// Until the identification banner has been seen every line classifies as
// Informational, so boot noise is never mistaken for a status report.
// The Classifier is used by the controller's event loop only and is not
// goroutine-safe.
type Classifier struct {
	fw         Firmware
	identified bool
}

// NewClassifier creates a Classifier waiting for identification.
func NewClassifier(fw Firmware) *Classifier {
	return &Classifier{fw: fw}
}

// Classify returns the category of line.
func (c *Classifier) Classify(line string) ResponseType {
	if !c.identified {
		if c.fw.IsIdentification(line) {
			c.identified = true
			return Identification
		}

		return Informational
	}

	if c.fw.IsIdentification(line) {
		return Identification
	}

	return c.fw.Classify(line)
}

// Identified reports whether the banner has been seen.
func (c *Classifier) Identified() bool {
	return c.identified
}

// Reset re-arms the Classifier to wait for identification.
func (c *Classifier) Reset() {
	c.identified = false
}
