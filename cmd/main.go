// Command facecheck runs the face-recognition check-in service and its
// maintenance commands.
package main

func main() {
	Execute()
}
