package config

type WorkerKeyStruct struct {
	PersistCompromiseQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistCompromiseQueue: "persist_compromise_queue",
}
