package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/KyotoMechatronics/goyozakura/comms"
	"github.com/KyotoMechatronics/goyozakura/onboard"
	"github.com/abiosoft/ishell"
	"github.com/asdine/storm"
	"github.com/caarlos0/env"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type EnvConfig struct {
	JWT_ISSUER string `env:"ROBOT_ID" envDefault:"DEV"`
	DEBUG      bool   `env:"DEBUG" envDefault:"0"`
	SRCDIR     string `env:"SRCDIR" envDefault:"."`
	DBFILE     string `env:"DBFILE" envDefault:"./tmp/live.db"`
	MQTTBroker string `env:"MQTT_BROKER" envDefault:""`

	DB        *storm.DB
	Conductor *comms.Conductor
	Network   onboard.NetworkConfig
	Simulated bool
}

var (
	ENV *EnvConfig
)

func init() {
	// Load main config
	ENV = new(EnvConfig)
	env.Parse(ENV)

	// setup database; make sure to init all of the structs
	dbFile, _ := filepath.Abs(ENV.DBFILE)
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		os.Mkdir(dir, 0755)
	}

	db, err := openDb(dbFile)
	if err != nil {
		panic(err)
	}
	ENV.DB = db
}

func main() {
	// process flags
	simulated := flag.Bool("sim", false, "Run the device in simulator mode")
	port := flag.String("port", "0.0.0.0:80", "Specify the ip:port to listen on")
	flag.Parse()

	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	defer ENV.DB.Close() // close database when finished

	// Setup the device properly so everything works as expected later
	filename, err := filepath.Abs(ENV.SRCDIR + "/yozakura.yaml")
	if err != nil {
		panic(err)
	}

	config := onboard.DefaultConfig()
	if _, err := os.Stat(filename); err == nil {
		config, err = onboard.LoadConfig(filename)
		if err != nil {
			panic(fmt.Sprintf("Unable to read config: %v", err))
		}
	} else {
		log.Printf("no %s, using the built in wiring table", filename)
	}
	ENV.Network = config.Network

	var robot *onboard.Yozakura
	ENV.Simulated = *simulated
	if ENV.Simulated {
		println("Creating simulator")
		robot, err = onboard.NewSimulatedYozakura(config)
	} else {
		robot, err = onboard.NewYozakura(config)
	}
	if err != nil {
		panic(fmt.Sprintf("Unable to initialize robot: %v", err))
	}

	loop := onboard.NewControlLoop(robot)
	go loop.Run()

	ENV.Conductor = comms.NewConductor(robot)
	ENV.Conductor.Cameras = config.Network.Cameras
	ENV.Conductor.Metrics = comms.NewMetrics()

	if ENV.MQTTBroker != "" {
		uplink, err := comms.NewUplink(ENV.MQTTBroker)
		if err != nil {
			log.Printf("telemetry uplink unavailable: %v", err)
		} else {
			ENV.Conductor.Uplink = uplink
		}
	}

	go ENV.Conductor.UpdateClients(loop.States())

	// Shut the motors down whatever way we exit
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("Shutting down...")
		loop.Stop()
		robot.Shutdown()
		ENV.DB.Close()
		os.Exit(0)
	}()

	//---
	// Create a local shell
	//---
	{
		channelNames := func([]string) []string {
			keys := make([]string, 0, len(robot.Channels))
			for k := range robot.Channels {
				keys = append(keys, k)
			}
			return keys
		}

		shell := ishell.New()
		shell.Println("Yozakura development shell")
		shell.ShowPrompt(true)
		shell.AddCmd(&ishell.Cmd{
			Name: "createsuperuser",
			Help: "createsuperuser <email> <password>",
			Func: func(c *ishell.Context) {
				// disable the '>>>' for cleaner same line input.
				c.ShowPrompt(false)
				defer c.ShowPrompt(true) // yes, revert when done.

				// get email
				var email string
				if len(c.Args) >= 1 {
					email = c.Args[0]
				} else {
					c.Print("Email: ")
					email = c.ReadLine()
				}

				// get password
				var password string
				if len(c.Args) >= 2 {
					password = c.Args[1]
				} else {
					c.Print("Password: ")
					password = c.ReadPassword()
				}

				// create operator account
				operator := &Operator{
					Email: email,
					Name:  email,
					Admin: true,
				}
				operator.SetPassword([]byte(password))
				err := ENV.DB.Save(operator)
				if err != nil {
					panic(err)
				}

				c.Println("Superuser created")
			},
		})

		// Add device specific commands
		shell.AddCmd(&ishell.Cmd{
			Name: "drive",
			Help: "drive <forward (-1 to 1)> <turn (-1 to 1)>",
			Func: func(c *ishell.Context) {
				forward, _ := strconv.ParseFloat(c.Args[0], 64)
				turn, _ := strconv.ParseFloat(c.Args[1], 64)
				c.Printf("Driving F:%.2f T:%.2f\n", forward, turn)
				robot.SetDrive(forward, turn)
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name:      "flipper",
			Completer: channelNames,
			Help:      "flipper <name> <position (0-1)>",
			Func: func(c *ishell.Context) {
				name := c.Args[0]
				position, _ := strconv.ParseFloat(c.Args[1], 64)
				c.Printf("Moving flipper %s to %.2f\n", name, position)
				if err := robot.SetFlipper(name, position); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name:      "reset",
			Completer: channelNames,
			Help:      "reset <channel>",
			Func: func(c *ishell.Context) {
				name := c.Args[0]
				c.Printf("Resetting fault on %s\n", name)
				if err := robot.ResetFault(name); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "stop",
			Help: "zero all drive outputs",
			Func: func(c *ishell.Context) {
				robot.Stop()
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "state",
			Func: func(c *ishell.Context) {
				for name, status := range robot.Status() {
					c.Printf("%-14s target=%+.2f output=%+.2f current=%.2fA state=%s\n",
						name, status.Target, status.Output, status.Current, status.State)
				}
			},
		})

		// Start an instance of the shell so it can be controlled from the CLI
		go shell.Start()
	}

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		// login
		r.Post("/login", Login)

		r.Route("/", func(r chi.Router) {
			// Seek, verify and validate JWT tokens
			r.Use(ValidateJWT)

			r.Get("/endpoints", EndpointsHandler)
			r.Get("/refresh_token", JWTRefresh)
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			// Enable JWT validation in production
			r.Use(ValidateJWT)
		} else {
			fmt.Println("Running in debug mode. Authentication disabled.")
		}

		r.Get("/teleop", TeleopHandler)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	fmt.Println("Listening on port", *port)
	if err := http.ListenAndServe(*port, r); err != nil {
		log.Fatal(err)
	}
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&Operator{}); err != nil {
		return nil, err
	}

	return
}
