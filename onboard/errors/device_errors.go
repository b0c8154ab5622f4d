package errors

import "fmt"

type ChannelNameError struct {
	Name string
}

func (err ChannelNameError) Error() string {
	return fmt.Sprintf("no such channel %s", err.Name)
}

type TooManyMotorsError struct {
	Limit int
}

func (err TooManyMotorsError) Error() string {
	return fmt.Sprintf("all %d motor slots are already registered", err.Limit)
}

type InvalidArgError struct {
	Msg string
}

func (err InvalidArgError) Error() string {
	return err.Msg
}

type NoDriversError struct {
	Motor string
}

func (err NoDriversError) Error() string {
	if len(err.Motor) == 0 {
		err.Motor = "UNKOWN"
	}

	return fmt.Sprintf("cannot drive motor %s; no serial or PWM driver enabled", err.Motor)
}

type FaultedChannelError struct {
	Name   string
	Action string
}

func (err FaultedChannelError) Error() string {
	if len(err.Action) == 0 {
		err.Action = "UNKOWN"
	}

	return fmt.Sprintf("channel %s is faulted and cannot perform action %s until reset", err.Name, err.Action)
}
