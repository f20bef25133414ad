package obl

import "log"

//HandleError stops the program on an unexpected error.
func HandleError(err error) {
	if err != nil {
		log.Panic(err)
	}
}
